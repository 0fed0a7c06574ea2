// Package service contains business logic for the plat-style engine:
// theme storage, compiled-evaluator caching, and the raw tile store backing
// the demo decode API.
package service

// ThemeFile describes a stored theme document.
type ThemeFile struct {
	ID        string   `json:"id" doc:"Theme identifier" example:"day"`
	Name      string   `json:"name" doc:"File name on disk" example:"day.json"`
	Size      string   `json:"size" doc:"Human-readable file size" example:"14.2 KB"`
	Format    string   `json:"format" enum:"json,yaml" doc:"Document format" example:"json"`
	StyleSets []string `json:"styleSets" doc:"Style sets the theme defines" example:"[\"tilezen\"]"`
}

// StoredTile identifies a raw tile buffer in the tile store.
type StoredTile struct {
	Z    int `json:"z" doc:"Zoom level" example:"10"`
	X    int `json:"x" doc:"Tile column" example:"545"`
	Y    int `json:"y" doc:"Tile row" example:"361"`
	Size int `json:"size" doc:"Buffer size in bytes"`
}
