package embedding

import (
	"context"
	"hash/fnv"
)

// MockClient produces deterministic embeddings from a hash of the input
// text. Equal texts embed identically, which is enough for tests and local
// development without an API key.
type MockClient struct {
	dims int
}

func NewMockClient() *MockClient {
	return &MockClient{dims: Dimensions}
}

func (m *MockClient) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.dims)
	for i := range vec {
		// xorshift keeps the sequence cheap and reproducible.
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		vec[i] = float32(int64(seed%2000)-1000) / 1000.0
	}
	return vec, nil
}
