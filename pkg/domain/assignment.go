package domain

import "sort"

// Assignment records which cluster node runs which shard. The root always
// runs OwnShard; every other shard is bound to exactly one peer.
type Assignment struct {
	OwnShard    int            `json:"own_shard"`
	PeerToShard map[string]int `json:"peer_to_shard"`
	ShardToPeer map[int]string `json:"shard_to_peer"`
	// Roster is the frozen roster the assignment was computed from.
	Roster []string `json:"roster"`
}

// Peers returns the assigned peer addresses ordered by shard id.
func (a *Assignment) Peers() []string {
	shards := make([]int, 0, len(a.ShardToPeer))
	for id := range a.ShardToPeer {
		shards = append(shards, id)
	}
	sort.Ints(shards)
	peers := make([]string, 0, len(shards))
	for _, id := range shards {
		peers = append(peers, a.ShardToPeer[id])
	}
	return peers
}

// AddressOf returns the address running the shard; self is returned for the
// own shard.
func (a *Assignment) AddressOf(shardID int, self string) (string, bool) {
	if shardID == a.OwnShard {
		return self, true
	}
	addr, ok := a.ShardToPeer[shardID]
	return addr, ok
}
