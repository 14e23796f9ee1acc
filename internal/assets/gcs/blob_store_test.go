package gcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"})
	assert.ErrorContains(t, err, "storage client is required")
}
