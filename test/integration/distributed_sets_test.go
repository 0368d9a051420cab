package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dreamware/setstore/internal/api"
)

// TestSystem represents a setstored instance under test
type TestSystem struct {
	t          *testing.T
	daemon     *exec.Cmd
	addr       string
	httpClient *http.Client
}

// NewTestSystem creates a test system pointed at a high port to avoid
// conflicts with anything already running
func NewTestSystem(t *testing.T) *TestSystem {
	return &TestSystem{
		t:    t,
		addr: "http://127.0.0.1:18090",
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Start launches the daemon and waits for it to accept requests
func (ts *TestSystem) Start() error {
	if _, err := os.Stat("./bin/setstored"); os.IsNotExist(err) {
		ts.t.Log("Building setstored binary...")
		if err := exec.Command("go", "build", "-o", "bin/setstored", "../../cmd/setstored").Run(); err != nil {
			return fmt.Errorf("failed to build setstored: %w", err)
		}
	}

	ts.t.Log("Starting setstored...")
	ts.daemon = exec.Command("./bin/setstored")
	ts.daemon.Env = append(os.Environ(),
		"SETSTORED_ADDR=:18090",
		"SETSTORED_SHARDS=4",
		"SETSTORED_DBS=2",
	)
	ts.daemon.Stdout = os.Stdout
	ts.daemon.Stderr = os.Stderr
	if err := ts.daemon.Start(); err != nil {
		return fmt.Errorf("failed to start setstored: %w", err)
	}

	return ts.waitForService(ts.addr + "/health")
}

// Stop shuts the daemon down
func (ts *TestSystem) Stop() {
	if ts.daemon != nil && ts.daemon.Process != nil {
		ts.t.Log("Stopping setstored...")
		ts.daemon.Process.Kill()
		ts.daemon.Wait()
	}
}

// waitForService waits for an HTTP service to become available
func (ts *TestSystem) waitForService(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s", url)
		default:
			resp, err := ts.httpClient.Get(url)
			if err == nil && resp.StatusCode == http.StatusOK {
				resp.Body.Close()
				return nil
			}
			if resp != nil {
				resp.Body.Close()
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// Add inserts members into a set and returns the added count
func (ts *TestSystem) Add(key string, members ...string) (int, error) {
	var resp api.CountResponse
	err := api.PostJSON(context.Background(), ts.addr+"/sets/add",
		api.MembersRequest{Key: key, Members: members}, &resp)
	return resp.Count, err
}

// Remove deletes members from a set and returns the removed count
func (ts *TestSystem) Remove(key string, members ...string) (int, error) {
	var resp api.CountResponse
	err := api.PostJSON(context.Background(), ts.addr+"/sets/remove",
		api.MembersRequest{Key: key, Members: members}, &resp)
	return resp.Count, err
}

// Pop removes count random members
func (ts *TestSystem) Pop(key string, count int) ([]string, error) {
	var resp api.MembersResponse
	err := api.PostJSON(context.Background(), ts.addr+"/sets/pop",
		api.PopRequest{Key: key, Count: fmt.Sprintf("%d", count)}, &resp)
	return resp.Members, err
}

// Card returns the set's size
func (ts *TestSystem) Card(key string) (int, error) {
	var resp api.CountResponse
	err := api.GetJSON(context.Background(), ts.addr+"/sets/card?key="+key, &resp)
	return resp.Count, err
}

// Members returns the set's contents, sorted for comparison
func (ts *TestSystem) Members(key string) ([]string, error) {
	var resp api.MembersResponse
	err := api.GetJSON(context.Background(), ts.addr+"/sets/members?key="+key, &resp)
	sort.Strings(resp.Members)
	return resp.Members, err
}

// Move transfers one member between sets
func (ts *TestSystem) Move(src, dest, member string) (int, error) {
	var resp api.CountResponse
	err := api.PostJSON(context.Background(), ts.addr+"/sets/move",
		api.MoveRequest{Src: src, Dest: dest, Member: member}, &resp)
	return resp.Count, err
}

// Algebra runs union, diff or inter and returns the sorted result
func (ts *TestSystem) Algebra(op string, keys ...string) ([]string, error) {
	var resp api.MembersResponse
	err := api.PostJSON(context.Background(), ts.addr+"/sets/"+op,
		api.KeysRequest{Keys: keys}, &resp)
	sort.Strings(resp.Members)
	return resp.Members, err
}

// Store runs a store variant and returns the stored cardinality
func (ts *TestSystem) Store(op, dest string, keys ...string) (int, error) {
	var resp api.CountResponse
	err := api.PostJSON(context.Background(), ts.addr+"/sets/"+op,
		api.StoreRequest{Dest: dest, Keys: keys}, &resp)
	return resp.Count, err
}

// TestDistributedSets runs end-to-end tests against a live daemon
func TestDistributedSets(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ts := NewTestSystem(t)
	if err := ts.Start(); err != nil {
		t.Fatalf("Failed to start test system: %v", err)
	}
	defer ts.Stop()

	t.Run("AddAndQuery", func(t *testing.T) {
		testAddAndQuery(t, ts)
	})

	t.Run("SetAlgebra", func(t *testing.T) {
		testSetAlgebra(t, ts)
	})

	t.Run("StoreVariants", func(t *testing.T) {
		testStoreVariants(t, ts)
	})

	t.Run("Move", func(t *testing.T) {
		testMove(t, ts)
	})

	t.Run("PopDrainsSet", func(t *testing.T) {
		testPopDrainsSet(t, ts)
	})

	t.Run("ConcurrentClients", func(t *testing.T) {
		testConcurrentClients(t, ts)
	})
}

func testAddAndQuery(t *testing.T, ts *TestSystem) {
	added, err := ts.Add("aq", "1", "2", "3", "2")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added != 3 {
		t.Errorf("Expected 3 added, got %d", added)
	}

	// Mixing in a non-integer member must not lose anything.
	if _, err := ts.Add("aq", "word"); err != nil {
		t.Fatalf("add non-int: %v", err)
	}

	card, err := ts.Card("aq")
	if err != nil {
		t.Fatalf("card: %v", err)
	}
	if card != 4 {
		t.Errorf("Expected card 4, got %d", card)
	}

	members, err := ts.Members("aq")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	want := []string{"1", "2", "3", "word"}
	if fmt.Sprint(members) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, members)
	}
}

func testSetAlgebra(t *testing.T, ts *TestSystem) {
	mustAdd(t, ts, "alg:a", "1", "2", "3")
	mustAdd(t, ts, "alg:b", "2", "3", "4")

	union, err := ts.Algebra("union", "alg:a", "alg:b")
	if err != nil {
		t.Fatalf("union: %v", err)
	}
	if len(union) != 4 {
		t.Errorf("Expected union of 4, got %v", union)
	}

	inter, err := ts.Algebra("inter", "alg:a", "alg:b")
	if err != nil {
		t.Fatalf("inter: %v", err)
	}
	if fmt.Sprint(inter) != fmt.Sprint([]string{"2", "3"}) {
		t.Errorf("Expected [2 3], got %v", inter)
	}

	diff, err := ts.Algebra("diff", "alg:a", "alg:b")
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if fmt.Sprint(diff) != fmt.Sprint([]string{"1"}) {
		t.Errorf("Expected [1], got %v", diff)
	}

	// A set differenced with itself is empty.
	self, err := ts.Algebra("diff", "alg:a", "alg:a")
	if err != nil {
		t.Fatalf("self diff: %v", err)
	}
	if len(self) != 0 {
		t.Errorf("Expected empty self-diff, got %v", self)
	}

	// Missing keys are treated as empty sets.
	union, err = ts.Algebra("union", "alg:a", "alg:missing")
	if err != nil {
		t.Fatalf("union with missing: %v", err)
	}
	if len(union) != 3 {
		t.Errorf("Expected 3, got %v", union)
	}
	inter, err = ts.Algebra("inter", "alg:a", "alg:missing")
	if err != nil {
		t.Fatalf("inter with missing: %v", err)
	}
	if len(inter) != 0 {
		t.Errorf("Expected empty intersection, got %v", inter)
	}
}

func testStoreVariants(t *testing.T, ts *TestSystem) {
	mustAdd(t, ts, "st:a", "1", "2", "3")
	mustAdd(t, ts, "st:b", "3", "4")

	count, err := ts.Store("unionstore", "st:dest", "st:a", "st:b")
	if err != nil {
		t.Fatalf("unionstore: %v", err)
	}
	if count != 4 {
		t.Errorf("Expected 4 stored, got %d", count)
	}

	// An empty result deletes the destination instead of leaving an
	// empty set behind.
	count, err = ts.Store("diffstore", "st:dest", "st:a", "st:a")
	if err != nil {
		t.Fatalf("diffstore: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 stored, got %d", count)
	}
	card, err := ts.Card("st:dest")
	if err != nil {
		t.Fatalf("card: %v", err)
	}
	if card != 0 {
		t.Errorf("Expected destination gone, card %d", card)
	}

	count, err = ts.Store("interstore", "st:dest2", "st:a", "st:b")
	if err != nil {
		t.Fatalf("interstore: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 stored, got %d", count)
	}
	members, _ := ts.Members("st:dest2")
	if fmt.Sprint(members) != fmt.Sprint([]string{"3"}) {
		t.Errorf("Expected [3], got %v", members)
	}
}

func testMove(t *testing.T, ts *TestSystem) {
	mustAdd(t, ts, "mv:src", "x", "y")

	moved, err := ts.Move("mv:src", "mv:dst", "x")
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved != 1 {
		t.Errorf("Expected 1 moved, got %d", moved)
	}

	src, _ := ts.Members("mv:src")
	dst, _ := ts.Members("mv:dst")
	if fmt.Sprint(src) != fmt.Sprint([]string{"y"}) {
		t.Errorf("Expected src [y], got %v", src)
	}
	if fmt.Sprint(dst) != fmt.Sprint([]string{"x"}) {
		t.Errorf("Expected dst [x], got %v", dst)
	}

	// Repeating the move finds nothing to transfer.
	moved, err = ts.Move("mv:src", "mv:dst", "x")
	if err != nil {
		t.Fatalf("repeat move: %v", err)
	}
	if moved != 0 {
		t.Errorf("Expected 0 moved, got %d", moved)
	}
}

func testPopDrainsSet(t *testing.T, ts *TestSystem) {
	mustAdd(t, ts, "pop:s", "a", "b", "c")

	popped, err := ts.Pop("pop:s", 10)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if len(popped) != 3 {
		t.Errorf("Expected all 3 popped, got %v", popped)
	}

	// The drained key is gone entirely.
	card, err := ts.Card("pop:s")
	if err != nil {
		t.Fatalf("card: %v", err)
	}
	if card != 0 {
		t.Errorf("Expected empty set, card %d", card)
	}
}

func testConcurrentClients(t *testing.T, ts *TestSystem) {
	const clients = 8
	const perClient = 25

	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for c := 0; c < clients; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for i := 0; i < perClient; i++ {
				if _, err := ts.Add("conc:s", fmt.Sprintf("m-%d-%d", c, i)); err != nil {
					errs <- err
					return
				}
			}
		}(c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent add: %v", err)
	}

	card, err := ts.Card("conc:s")
	if err != nil {
		t.Fatalf("card: %v", err)
	}
	if card != clients*perClient {
		t.Errorf("Expected %d members, got %d", clients*perClient, card)
	}
}

func mustAdd(t *testing.T, ts *TestSystem, key string, members ...string) {
	t.Helper()
	if _, err := ts.Add(key, members...); err != nil {
		t.Fatalf("add %s: %v", key, err)
	}
}
