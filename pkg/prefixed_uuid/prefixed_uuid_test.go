package prefixed_uuid //nolint:revive // var-naming: using underscores for domain clarity

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	p := New("kbe")
	assert.Equal(t, "kbe", p.Prefix)
	assert.NotEqual(t, uuid.Nil, p.UUID)
	assert.NotEqual(t, p, New("kbe"))
}

func TestFromString(t *testing.T) {
	id := uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")

	tests := []struct {
		name    string
		input   string
		want    PrefixedUUID
		wantErr bool
	}{
		{name: "entry id", input: "kbe-123e4567-e89b-12d3-a456-426614174000", want: PrefixedUUID{Prefix: "kbe", UUID: id}},
		{name: "category id", input: "kbc-123e4567-e89b-12d3-a456-426614174000", want: PrefixedUUID{Prefix: "kbc", UUID: id}},
		{name: "no dash", input: "kbe", wantErr: true},
		{name: "empty prefix", input: "-123e4567-e89b-12d3-a456-426614174000", wantErr: true},
		{name: "bad uuid", input: "kbe-not-a-uuid", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromString(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestParse(t *testing.T) {
	s := New("kbe").String()

	_, err := Parse(s, "kbe")
	assert.NoError(t, err)

	_, err = Parse(s, "kbc")
	assert.ErrorContains(t, err, `expected prefix "kbc"`)

	assert.True(t, Is(s, "kbe"))
	assert.False(t, Is(s, "kbc"))
	assert.False(t, Is("Red Dragon", "kbe"))
}

func TestIsZero(t *testing.T) {
	assert.True(t, PrefixedUUID{}.IsZero())
	assert.False(t, New("kbe").IsZero())
	assert.False(t, PrefixedUUID{Prefix: "kbe"}.IsZero())
}

func TestJSON(t *testing.T) {
	type doc struct {
		ID PrefixedUUID `json:"id"`
	}
	in := doc{ID: New("kbc")}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+in.ID.String()+`"}`, string(data))

	var out doc
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	assert.Error(t, json.Unmarshal([]byte(`{"id":"nope"}`), &out))
	assert.Error(t, json.Unmarshal([]byte(`{"id":42}`), &out))
}
