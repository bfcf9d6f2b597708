// internal/content/content.go
package content

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"

	"github.com/jason-s-yu/filterbattle/internal/models"
	"gopkg.in/yaml.v2"
)

//go:embed topics.yaml
var defaultContent []byte

// ErrNoTopics is returned when a content file defines no topics at all.
var ErrNoTopics = errors.New("content: no topics defined")

type rawContent struct {
	Topics  []models.Topic `yaml:"topics"`
	Filters []string       `yaml:"filters"`
}

// Library is the RNG/content provider used by the game. It owns its random
// source so a seeded generator yields reproducible rounds in tests.
type Library struct {
	mu      sync.Mutex
	rng     *rand.Rand
	topics  []models.Topic
	filters []string
}

// NewRand returns a PCG-backed generator for the given seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Parse decodes YAML content.
func Parse(data []byte, rng *rand.Rand) (*Library, error) {
	var raw rawContent
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("content: parse yaml: %w", err)
	}
	if len(raw.Topics) == 0 {
		return nil, ErrNoTopics
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Library{
		rng:     rng,
		topics:  raw.Topics,
		filters: raw.Filters,
	}, nil
}

// Load reads content from path, or the embedded defaults when path is empty.
func Load(path string, rng *rand.Rand) (*Library, error) {
	if path == "" {
		return Parse(defaultContent, rng)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("content: read %s: %w", path, err)
	}
	return Parse(data, rng)
}

// Topics returns a copy of the loaded topics.
func (l *Library) Topics() []models.Topic {
	out := make([]models.Topic, len(l.topics))
	copy(out, l.topics)
	return out
}

// PickRandomTopic returns a copy of a random topic, or nil if none are loaded.
func (l *Library) PickRandomTopic() *models.Topic {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.topics) == 0 {
		return nil
	}
	t := l.topics[l.rng.IntN(len(l.topics))]
	t.Filters = append([]string(nil), t.Filters...)
	return &t
}

// PickRandomFilterWord draws from the global filter list. Empty means none.
func (l *Library) PickRandomFilterWord() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.filters) == 0 {
		return ""
	}
	return l.filters[l.rng.IntN(len(l.filters))]
}

// PickRandomFilterForTopic draws from the topic's own filters.
func (l *Library) PickRandomFilterForTopic(topic *models.Topic) string {
	if topic == nil || len(topic.Filters) == 0 {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return topic.Filters[l.rng.IntN(len(topic.Filters))]
}

// PickRandomPlayer picks uniformly among players.
func (l *Library) PickRandomPlayer(players []models.Player) (models.PlayerID, bool) {
	if len(players) == 0 {
		return "", false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return players[l.rng.IntN(len(players))].ID, true
}
