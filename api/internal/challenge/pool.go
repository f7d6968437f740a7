// Package challenge - источник заданий: YAML-пул, отладочное задание и генератор.
package challenge

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"reality-quest/api/internal/types"
)

// Source выдаёт следующее задание, по возможности отличное от excludeID.
type Source interface {
	Pick(excludeID string) types.Challenge
}

//go:embed challenges.yaml
var defaultYAML []byte

type poolFile struct {
	Challenges []types.Challenge `yaml:"challenges"`
}

type Pool struct {
	mu    sync.Mutex
	items []types.Challenge
	rnd   *rand.Rand
}

var ErrEmptyPool = errors.New("challenge: pool is empty")

func LoadPool(r io.Reader) (*Pool, error) {
	var f poolFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("challenge pool: %w", err)
	}
	if err := validate(f.Challenges); err != nil {
		return nil, err
	}
	return &Pool{items: f.Challenges, rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}, nil
}

func LoadPoolFile(path string) (*Pool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadPool(f)
}

// DefaultPool: встроенный набор заданий.
func DefaultPool() *Pool {
	p, err := LoadPool(bytes.NewReader(defaultYAML))
	if err != nil {
		panic(err)
	}
	return p
}

func validate(items []types.Challenge) error {
	if len(items) == 0 {
		return ErrEmptyPool
	}
	seen := make(map[string]bool, len(items))
	for i, c := range items {
		switch {
		case strings.TrimSpace(c.ID) == "":
			return fmt.Errorf("challenge %d: empty id", i)
		case seen[c.ID]:
			return fmt.Errorf("challenge %q: duplicate id", c.ID)
		case strings.TrimSpace(c.Description) == "":
			return fmt.Errorf("challenge %q: empty description", c.ID)
		case c.Points <= 0:
			return fmt.Errorf("challenge %q: points must be positive", c.ID)
		case c.LocationCheck != nil && c.LocationCheck.RadiusMeters <= 0:
			return fmt.Errorf("challenge %q: radius must be positive", c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}

// WithSeed фиксирует генератор (тесты).
func (p *Pool) WithSeed(seed uint64) *Pool {
	p.mu.Lock()
	p.rnd = rand.New(rand.NewPCG(seed, seed))
	p.mu.Unlock()
	return p
}

func (p *Pool) All() []types.Challenge {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.Challenge(nil), p.items...)
}

// Get: задание по id.
func (p *Pool) Get(id string) (types.Challenge, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.items {
		if c.ID == id {
			return c, true
		}
	}
	return types.Challenge{}, false
}

// Pick: случайное задание кроме excludeID; пул из одного задания возвращает его же.
func (p *Pool) Pick(excludeID string) types.Challenge {
	p.mu.Lock()
	defer p.mu.Unlock()
	candidates := make([]types.Challenge, 0, len(p.items))
	for _, c := range p.items {
		if c.ID != excludeID {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		candidates = p.items
	}
	return candidates[p.rnd.IntN(len(candidates))]
}
