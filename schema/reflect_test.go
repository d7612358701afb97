package schema

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reflectAuthor struct {
	Name string `json:"name"`
}

type reflectBook struct {
	Title    string            `json:"title" description:"Book title"`
	Genre    string            `json:"genre" enum:"fantasy,scifi"`
	Rating   int               `json:"rating" enum:"1,2,3"`
	Year     *int              `json:"year"`
	Price    float64           `json:"price,omitempty"`
	InPrint  bool              `json:"in_print"`
	Tags     []string          `json:"tags"`
	Author   reflectAuthor     `json:"author"`
	Extra    map[string]string `json:"extra,omitempty"`
	Cover    []byte            `json:"cover,omitempty"`
	Released time.Time         `json:"released"`
	Internal string            `json:"-"`
	NoTag    string
	hidden   string
}

func TestFor_Struct(t *testing.T) {
	s, err := For[reflectBook]()
	require.NoError(t, err)

	names := make([]string, 0)
	for _, f := range s.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"title", "genre", "rating", "year", "price", "in_print", "tags", "author", "extra", "cover", "released", "NoTag"}, names)

	title, _ := s.Field("title")
	assert.Equal(t, TypeString, title.Type)
	assert.Equal(t, "Book title", title.Description)
	assert.True(t, title.IsRequired)

	genre, _ := s.Field("genre")
	assert.Equal(t, []any{"fantasy", "scifi"}, genre.EnumValues)

	rating, _ := s.Field("rating")
	assert.Equal(t, TypeInteger, rating.Type)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, rating.EnumValues)

	year, _ := s.Field("year")
	assert.Equal(t, TypeInteger, year.Type)
	assert.False(t, year.IsRequired, "pointer fields are optional")

	price, _ := s.Field("price")
	assert.Equal(t, TypeNumber, price.Type)
	assert.False(t, price.IsRequired, "omitempty fields are optional")

	tags, _ := s.Field("tags")
	assert.Equal(t, TypeArray, tags.Type)
	require.NotNil(t, tags.Items)
	assert.Equal(t, TypeString, tags.Items.Type)

	author, _ := s.Field("author")
	assert.Equal(t, TypeObject, author.Type)
	require.Len(t, author.Properties, 1)
	assert.Equal(t, "name", author.Properties[0].Name)

	cover, _ := s.Field("cover")
	assert.Equal(t, TypeString, cover.Type)
	released, _ := s.Field("released")
	assert.Equal(t, TypeString, released.Type)
}

func TestFor_ValidatesDecodedArguments(t *testing.T) {
	s := MustFor[reflectAuthor]()

	assert.NoError(t, s.Validate(map[string]any{"name": "Le Guin"}))
	assert.Error(t, s.Validate(map[string]any{}))
	assert.Error(t, s.Validate(map[string]any{"name": 3.0}))
}

func TestReflect_Errors(t *testing.T) {
	type node struct {
		Next *node `json:"next"`
	}
	type bad struct {
		Ch chan int `json:"ch"`
	}
	type intKeys struct {
		M map[int]string `json:"m"`
	}

	tests := []struct {
		name string
		typ  reflect.Type
	}{
		{"not a struct", reflect.TypeOf(42)},
		{"recursive", reflect.TypeOf(node{})},
		{"unsupported kind", reflect.TypeOf(bad{})},
		{"non string map key", reflect.TypeOf(intKeys{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reflect(tt.typ)
			assert.Error(t, err)
		})
	}
}

func TestReflect_Pointer(t *testing.T) {
	s, err := Reflect(reflect.TypeOf(&reflectAuthor{}))
	require.NoError(t, err)
	assert.Len(t, s.Fields(), 1)
}
