package rwaccess_test

import (
	"fmt"

	rwaccess "github.com/joeycumines/go-rwaccess"
)

// Demonstrates the exclusion rule: a read holds shared access for as long as
// its operation runs, and a write waiting only on running readers is granted
// directly, as soon as the last of them finishes.
func ExampleAccess() {
	access := rwaccess.New(0)
	e := rwaccess.NewExecution()

	store := `initial`

	// a read settled externally, modeling an in-flight lookup that holds
	// shared access until it finishes
	lookup := rwaccess.NewDeferred()
	access.Read(lookup.Promise()).Connect(e, rwaccess.SinkFuncs{
		OnSuccess: func(value any) { fmt.Printf("read: snapshot %v\n", value) },
	})

	// the write cannot start while the read is running
	access.Write(rwaccess.Sync(func() (any, error) {
		store = `updated`
		return store, nil
	})).Connect(e, rwaccess.SinkFuncs{
		OnSuccess: func(value any) { fmt.Printf("write: store %v\n", value) },
	})
	fmt.Println(`write parked behind the active read`)

	// finishing the read releases its hold; the parked write runs immediately
	lookup.Succeed(store)

	// Output:
	// write parked behind the active read
	// write: store updated
	// read: snapshot initial
}
