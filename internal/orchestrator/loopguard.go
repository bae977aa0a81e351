package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// loopGuard detects a model stuck calling the same tool with the same
// arguments over and over without making progress, so Turn can cut the
// iteration short instead of burning the whole MaxIterations budget.
type loopGuard struct {
	callCounts   map[string]int // hash(name+args) -> consecutive repeat count
	resultHashes map[string]string
	lastHash     string
}

func newLoopGuard() *loopGuard {
	return &loopGuard{
		callCounts:   make(map[string]int),
		resultHashes: make(map[string]string),
	}
}

// record hashes name+args and bumps its consecutive-repeat counter, resetting
// any other call's counter (only the last call's streak matters).
func (g *loopGuard) record(name string, args map[string]interface{}) string {
	hash := hashCall(name, args)
	if hash == g.lastHash {
		g.callCounts[hash]++
	} else {
		g.callCounts[hash] = 1
		g.lastHash = hash
	}
	return hash
}

// recordResult remembers a call's result hash, so repeated identical
// call+result pairs (not just repeated calls) can be distinguished from a
// tool that is making genuine incremental progress on retries.
func (g *loopGuard) recordResult(hash, result string) {
	sum := sha256.Sum256([]byte(result))
	g.resultHashes[hash] = hex.EncodeToString(sum[:])
}

// detect returns ("warning"|"critical", message) once a call streak crosses
// a threshold. "warning" at 3 repeats (inject a nudge), "critical" at 6
// (give up on this turn).
func (g *loopGuard) detect(name, hash string) (string, string) {
	count := g.callCounts[hash]
	switch {
	case count >= 6:
		return "critical", fmt.Sprintf("tool %q called %d times in a row with identical arguments", name, count)
	case count == 3:
		return "warning", fmt.Sprintf("You've called %s with the same arguments %d times in a row. Try a different approach or use the result you already have.", name, count)
	default:
		return "", ""
	}
}

func hashCall(name string, args map[string]interface{}) string {
	b, _ := json.Marshal(args)
	sum := sha256.Sum256(append([]byte(name+":"), b...))
	return hex.EncodeToString(sum[:])
}
