package plan

import (
	"fmt"
	"strconv"

	"dropsync/internal/config"
	"dropsync/internal/fileutil"
	"dropsync/internal/template"
)

// Sequencer resolves target-path collisions within one pass. The planner uses
// a lenient instance (initial targets may still carry metadata placeholders
// that finalization will rewrite); the finalizer uses a strict instance whose
// result set must be globally unique.
type Sequencer struct {
	policy string
	strict bool
	used   map[string]struct{}
}

// NewSequencer returns a lenient sequencer for the initial planning pass.
func NewSequencer(policy string) *Sequencer {
	return &Sequencer{policy: policy, used: make(map[string]struct{})}
}

// NewStrictSequencer returns a sequencer for the finalization pass: duplicate
// targets under the `none` policy are an error rather than a provisional state.
func NewStrictSequencer(policy string) *Sequencer {
	return &Sequencer{policy: policy, strict: true, used: make(map[string]struct{})}
}

// Apply turns a rendered-but-unsequenced path into a collision-resolved path
// for this pass and reserves it.
//
// Policies: `none` uses the path as-is; `run` substitutes an integer counter
// for <run>, incrementing past paths already reserved in this pass; `hash`
// substitutes a checksum of the source file's bytes for <hash>, so
// byte-identical files deliberately collide.
func (s *Sequencer) Apply(rendered, source string) (string, error) {
	switch s.policy {
	case config.SeqRun:
		for n := 1; ; n++ {
			candidate := template.Render(rendered, template.Literal("run", strconv.Itoa(n)))
			if _, taken := s.used[candidate]; !taken {
				s.used[candidate] = struct{}{}
				return candidate, nil
			}
			if candidate == rendered {
				// A capture group named run already consumed the placeholder;
				// the counter has nothing left to substitute.
				return "", fmt.Errorf("duplicate target path %q has no <run> placeholder left to sequence", rendered)
			}
		}
	case config.SeqHash:
		digest, err := fileutil.CRC32File(source)
		if err != nil {
			return "", fmt.Errorf("hash sequencing for %s: %w", source, err)
		}
		candidate := template.Render(rendered, template.Literal("hash", digest))
		s.used[candidate] = struct{}{}
		return candidate, nil
	default:
		if _, taken := s.used[rendered]; taken && s.strict {
			return "", fmt.Errorf("duplicate target path %q; use run or hash sequencing", rendered)
		}
		s.used[rendered] = struct{}{}
		return rendered, nil
	}
}
