package kitchen

// BaseExclusions are always excluded from synchronization, ahead of any
// chefignore pattern. ".*" covers every dot-prefixed entry (.git, .chef, ...).
var BaseExclusions = []string{"revision-deploys", "tmp", ".*"}

// IgnoreSource supplies the kitchen's ignore-file patterns.
type IgnoreSource interface {
	IgnorePatterns() ([]string, error)
}

// BuildExclusions returns BaseExclusions followed by the source's patterns,
// with duplicates removed. The first occurrence wins, because the transfer
// tool applies exclusion rules in order.
func BuildExclusions(src IgnoreSource) ([]string, error) {
	extra, err := src.IgnorePatterns()
	if err != nil {
		return nil, err
	}
	return dedupe(BaseExclusions, extra), nil
}

func dedupe(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, p := range list {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
