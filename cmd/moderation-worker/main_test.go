package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFinalizeEvent(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		bucket string
		object string
		meta   map[string]string
	}{
		{
			name:   "binary mode",
			body:   `{"bucket":"b","name":"pending/avatars/p1/x.png","metadata":{"profileId":"p1"}}`,
			bucket: "b", object: "pending/avatars/p1/x.png", meta: map[string]string{"profileId": "p1"},
		},
		{
			name:   "structured mode",
			body:   `{"specversion":"1.0","data":{"bucket":"b","name":"pending/avatars/p1/y.png"}}`,
			bucket: "b", object: "pending/avatars/p1/y.png",
		},
		{
			name: "empty",
			body: `{}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := parseFinalizeEvent([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, ev.Bucket)
			assert.Equal(t, tt.object, ev.Name)
			assert.Equal(t, tt.meta, ev.Metadata)
		})
	}

	_, err := parseFinalizeEvent([]byte(`not json`))
	assert.Error(t, err)
}
