package notify

import "github.com/vk/nodepipe/internal/node"

func descriptions(results []*node.Result) []string {
	out := make([]string, 0, len(results))
	for _, res := range results {
		out = append(out, res.Node.Description())
	}
	return out
}
