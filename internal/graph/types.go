// types.go
package graph

// NodeType selects which encounter a node runs.
type NodeType string

const (
	NodeWave NodeType = "wave"
	NodeBoss NodeType = "boss"
)

// StartID is the entry node every graph must define.
const StartID = "start"

// Node is one encounter in a run graph; exits point forward only.
type Node struct {
	ID       string         `yaml:"id" json:"id"`
	Type     NodeType       `yaml:"type" json:"type"`
	Title    string         `yaml:"title,omitempty" json:"title,omitempty"`
	Exits    []string       `yaml:"exits,omitempty" json:"exits"`
	Modifier string         `yaml:"modifier,omitempty" json:"modifier,omitempty"`
	Reward   *RewardPreview `yaml:"rewardPreview,omitempty" json:"rewardPreview,omitempty"`
}

// RewardPreview overrides the computed node reward when a field is set.
type RewardPreview struct {
	Salvage *int   `yaml:"salvage,omitempty" json:"salvage,omitempty"`
	Cores   *int   `yaml:"cores,omitempty" json:"cores,omitempty"`
	Bonus   string `yaml:"bonus,omitempty" json:"bonus,omitempty"`
}

// bundle is the multi-graph file layout: graphs.<id> -> nodes.
type bundle struct {
	Graphs map[string][]Node `yaml:"graphs"`
}

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	out := n
	if n.Exits != nil {
		out.Exits = append([]string(nil), n.Exits...)
	}
	if n.Reward != nil {
		r := *n.Reward
		if n.Reward.Salvage != nil {
			v := *n.Reward.Salvage
			r.Salvage = &v
		}
		if n.Reward.Cores != nil {
			v := *n.Reward.Cores
			r.Cores = &v
		}
		out.Reward = &r
	}
	return out
}

func cloneNodes(in []Node) []Node {
	out := make([]Node, len(in))
	for i, n := range in {
		out[i] = n.Clone()
	}
	return out
}

// Find returns the node with id from nodes.
func Find(nodes []Node, id string) (Node, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// ExitsOf maps the exits of id to nodes, skipping exits that do not resolve.
func ExitsOf(nodes []Node, id string) []Node {
	cur, ok := Find(nodes, id)
	if !ok {
		return nil
	}
	out := make([]Node, 0, len(cur.Exits))
	for _, exit := range cur.Exits {
		if n, ok := Find(nodes, exit); ok {
			out = append(out, n.Clone())
		}
	}
	return out
}
