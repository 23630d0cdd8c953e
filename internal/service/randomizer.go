package service

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// Randomizer produces uniform permutations. It is safe for concurrent use.
type Randomizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomizer seeds a PCG source from crypto/rand.
func NewRandomizer() *Randomizer {
	var seed [16]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("randomizer: read seed: " + err.Error())
	}
	return NewSeededRandomizer(binary.LittleEndian.Uint64(seed[:8]), binary.LittleEndian.Uint64(seed[8:]))
}

// NewSeededRandomizer returns a deterministic Randomizer, for tests.
func NewSeededRandomizer(seed1, seed2 uint64) *Randomizer {
	return &Randomizer{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Shuffle permutes list in place with Fisher-Yates: for i from the last
// index down to 1, swap list[i] with list[j], j uniform in [0, i].
func Shuffle[T any](r *Randomizer, list []T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(list) - 1; i > 0; i-- {
		j := r.rng.IntN(i + 1)
		list[i], list[j] = list[j], list[i]
	}
}

// BuildManifest orders the pool once, keeps the first limit questions
// (all of them when limit <= 0) and then shuffles each question's options
// independently. The input slice is not modified.
func (r *Randomizer) BuildManifest(pool []model.Question, limit int) model.Manifest {
	ordered := slices.Clone(pool)
	Shuffle(r, ordered)
	if limit > 0 && limit < len(ordered) {
		ordered = ordered[:limit]
	}

	manifest := make(model.Manifest, len(ordered))
	for i, q := range ordered {
		opts := slices.Clone(q.Options)
		Shuffle(r, opts)
		manifest[i] = model.ManifestItem{QuestionID: q.ID, Options: opts}
	}
	return manifest
}
