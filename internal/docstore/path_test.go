package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidCollectionPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"profiles", true},
		{"users/u1/connections", true},
		{"users/u1", false},
		{"", false},
		{"users//connections", false},
		{"/profiles", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidCollectionPath(tt.path))
		})
	}
}

func TestSplitDocPath(t *testing.T) {
	col, id, ok := SplitDocPath(DocPath("users/u1/sentRequests", "u2"))
	assert.True(t, ok)
	assert.Equal(t, "users/u1/sentRequests", col)
	assert.Equal(t, "u2", id)

	_, _, ok = SplitDocPath("profiles/")
	assert.False(t, ok)
	_, _, ok = SplitDocPath("profiles")
	assert.False(t, ok)
}

func TestDecodeInjectsID(t *testing.T) {
	var out struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	err := Decode(Document{ID: "p1", Data: Data{"name": "Asha", "id": "stale"}}, &out)
	assert.NoError(t, err)
	assert.Equal(t, "p1", out.ID)
	assert.Equal(t, "Asha", out.Name)
}

func TestEncodeRoundTripsTags(t *testing.T) {
	d, err := Encode(struct {
		LookingFor []string `json:"lookingFor"`
	}{LookingFor: []string{"Friends"}})
	assert.NoError(t, err)
	assert.Equal(t, []interface{}{"Friends"}, d["lookingFor"])
}
