package teams

import (
	"strings"

	"github.com/forPelevin/debatescribe/internal/types"
)

const joinSep = "\n"

// Aggregate joins each team's texts in the order given.
func Aggregate(textsByTeam map[string][]string) map[string]string {
	out := make(map[string]string, len(textsByTeam))
	for team, texts := range textsByTeam {
		out[team] = strings.Join(texts, joinSep)
	}
	return out
}

// Collector accumulates participant texts per team in processing order and
// remembers the order teams were first seen in.
type Collector struct {
	order  []string
	byTeam map[string][]string
}

func NewCollector() *Collector {
	return &Collector{byTeam: make(map[string][]string)}
}

func (c *Collector) Add(team, text string) {
	if _, ok := c.byTeam[team]; !ok {
		c.order = append(c.order, team)
	}
	c.byTeam[team] = append(c.byTeam[team], text)
}

func (c *Collector) Transcripts() []types.TeamTranscript {
	joined := Aggregate(c.byTeam)
	out := make([]types.TeamTranscript, 0, len(c.order))
	for _, team := range c.order {
		out = append(out, types.TeamTranscript{Team: team, Text: joined[team]})
	}
	return out
}
