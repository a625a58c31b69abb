package usecase

import (
	"strings"

	"github.com/forPelevin/debatescribe/internal/apperr"
	"github.com/forPelevin/debatescribe/internal/domain/roster"
	"github.com/forPelevin/debatescribe/internal/types"
)

// reservedTeam would make <team>.txt collide with the global readable transcript.
const reservedTeam = "conversation"

// identities hands out speaker identities for one batch. Every identity maps
// to one set of artifacts, so a later file resolving to a taken identity is
// rejected in favor of the earlier one.
type identities struct {
	owner map[string]string
}

func newIdentities() *identities {
	return &identities{owner: make(map[string]string)}
}

func (s *identities) claim(name string) (types.Identity, error) {
	id, err := roster.ParseFilename(name)
	if err != nil {
		return types.Identity{}, err
	}
	if strings.EqualFold(id.Team, reservedTeam) {
		return types.Identity{}, apperr.Newf(apperr.KindParse,
			"filename %s uses reserved team name %q", name, id.Team)
	}
	key := id.Stem()
	if first, ok := s.owner[key]; ok {
		return types.Identity{}, apperr.Newf(apperr.KindParse,
			"filename %s resolves to %s, already taken by %s", name, key, first).
			WithMetadata("first", first)
	}
	s.owner[key] = name
	return id, nil
}
