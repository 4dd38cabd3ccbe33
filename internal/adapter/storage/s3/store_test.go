package s3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

func TestNew_Validation(t *testing.T) {
	cases := map[string]Config{
		"no endpoint": {AccessKey: "a", SecretKey: "s", Bucket: "b"},
		"no keys":     {Endpoint: "localhost:9000", Bucket: "b"},
		"no bucket":   {Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(cfg)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestObjectName(t *testing.T) {
	s, err := New(Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "b", Prefix: "/catalogs/"})
	require.NoError(t, err)
	assert.Equal(t, "catalogs/laptops.csv", s.ObjectName("laptops.csv"))
	assert.Equal(t, "catalogs/x/laptops.csv", s.ObjectName("../x/laptops.csv"))

	s.prefix = ""
	assert.Equal(t, "laptops.csv", s.ObjectName(" /laptops.csv "))
}
