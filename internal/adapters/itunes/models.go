package itunes

// searchResponse is the iTunes Search API response body.
type searchResponse struct {
	ResultCount int            `json:"resultCount"`
	Results     []searchResult `json:"results"`
}

type searchResult struct {
	WrapperType      string `json:"wrapperType"`
	Kind             string `json:"kind"`
	TrackID          int64  `json:"trackId"`
	TrackName        string `json:"trackName"`
	ArtistName       string `json:"artistName"`
	CollectionName   string `json:"collectionName"`
	PrimaryGenreName string `json:"primaryGenreName"`
	ArtworkURL100    string `json:"artworkUrl100"`
	PreviewURL       string `json:"previewUrl"`
	TrackTimeMillis  int    `json:"trackTimeMillis"`
}

// chartFeed is the Apple Marketing Tools RSS feed body.
type chartFeed struct {
	Feed struct {
		Title   string       `json:"title"`
		Results []chartEntry `json:"results"`
	} `json:"feed"`
}

type chartEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ArtistName string `json:"artistName"`
}
