package domain

const (
	EntitySong          = "song"
	AttributeGenreIndex = "genreIndex"
	AttributeArtistTerm = "artistTerm"
)

// SearchParams describes the next upstream catalog search. Attribute is
// optional and omitted from the query when empty.
type SearchParams struct {
	Term      string `json:"term"`
	Entity    string `json:"entity"`
	Attribute string `json:"attribute,omitempty"`
}

// Values returns the params as a key/value map, without the attribute key when unset.
func (p SearchParams) Values() map[string]string {
	v := map[string]string{
		"term":   p.Term,
		"entity": p.Entity,
	}
	if p.Attribute != "" {
		v["attribute"] = p.Attribute
	}
	return v
}
