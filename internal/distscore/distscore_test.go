package distscore

import "testing"

func TestShardForIsDeterministic(t *testing.T) {
	s := NewShards([]string{"redis-a:6379", "redis-b:6379", "redis-c:6379"})

	first := s.shardFor("rulebook-42")
	for i := 0; i < 10; i++ {
		if got := s.shardFor("rulebook-42"); got != first {
			t.Fatalf("shardFor is not stable across repeated calls: %d vs %d", got, first)
		}
	}
}

func TestShardForDistributesAcrossShards(t *testing.T) {
	s := NewShards([]string{"redis-a:6379", "redis-b:6379", "redis-c:6379"})

	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		seen[s.shardFor(refIDForShardTest(i))] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected references to spread across more than one shard, got %v", seen)
	}
}

func TestResultKeyIncludesBothIDs(t *testing.T) {
	key := resultKey("ref-1", "cand-9")
	if key != "compmatch:result:ref-1:cand-9" {
		t.Fatalf("unexpected result key shape: %s", key)
	}
}

func refIDForShardTest(i int) string {
	b := []byte("ref-0000")
	for j := 0; i > 0 && j < 4; j++ {
		b[7-j] = byte('0' + i%10)
		i /= 10
	}
	return string(b)
}
