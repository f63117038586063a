package storychain

import (
	"github.com/valyala/fastrand"
)

// Prompt is one visual writing prompt: the picture shown to the room and the
// description handed to the evaluator.
type Prompt struct {
	ImageURL    string `json:"image_url"`
	Description string `json:"image_description"`
}

var defaultPrompts = []Prompt{
	{ImageURL: "/static/story/park.jpg", Description: "Mga batang masayang naglalaro sa parke"},
	{ImageURL: "/static/story/palengke.jpg", Description: "Isang abalang umaga sa palengke"},
	{ImageURL: "/static/story/bukid.jpg", Description: "Magsasakang nag-aani ng palay sa bukid"},
	{ImageURL: "/static/story/dagat.jpg", Description: "Mga mangingisdang naglalayag sa dagat"},
	{ImageURL: "/static/story/pista.jpg", Description: "Makulay na pista sa plaza ng bayan"},
	{ImageURL: "/static/story/ulan.jpg", Description: "Magkakaibigang sumisilong sa ulan"},
	{ImageURL: "/static/story/paaralan.jpg", Description: "Unang araw ng pasukan sa paaralan"},
	{ImageURL: "/static/story/bundok.jpg", Description: "Pag-akyat sa bundok tuwing madaling araw"},
}

func NewCatalog() *Catalog {
	return &Catalog{prompts: defaultPrompts}
}

// Catalog is the fixed set of prompts a deployment serves.
type Catalog struct {
	prompts []Prompt
}

func (c *Catalog) Len() int {
	return len(c.prompts)
}

func (c *Catalog) At(i int) Prompt {
	if i < 0 || i >= len(c.prompts) {
		return Prompt{}
	}
	return c.prompts[i]
}

// ShuffledOrder picks n distinct catalog indexes in random order, fixing the
// prompt sequence of one room at creation.
func (c *Catalog) ShuffledOrder(n int) []int {
	order := make([]int, len(c.prompts))
	for i := range order {
		order[i] = i
	}

	for i := len(order) - 1; i > 0; i-- {
		j := int(fastrand.Uint32n(uint32(i + 1)))
		order[i], order[j] = order[j], order[i]
	}

	if n < len(order) {
		order = order[:n]
	}

	return order
}
