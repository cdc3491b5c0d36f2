package graphid_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/graphid"
	"github.com/hupe1980/graphid/authority/memory"
)

// Example demonstrates allocating and decoding identifiers.
func Example() {
	ctx := context.Background()

	m, err := graphid.New(memory.New(), graphid.WithPartitionBits(4))
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	v, _ := m.NewVertexID(ctx, 3)
	r, _ := m.NewRelationIDFor(ctx, v)
	pk, _ := m.NewPropertyKeyID(ctx)

	for _, id := range []graphid.ID{v, r, pk} {
		d, _ := m.Decode(id)
		fmt.Printf("%s partition=%d counter=%d\n", d.Kind, d.Partition, d.Counter)
	}
	// Output:
	// vertex partition=3 counter=1
	// relation partition=3 counter=1
	// property-key partition=0 counter=1
}

// Example_storageKeys demonstrates the order-preserving key form.
func Example_storageKeys() {
	ctx := context.Background()

	m, err := graphid.New(memory.New(), graphid.WithPartitionBits(4))
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	id, _ := m.NewVertexID(ctx, 1)
	key := m.Key(id)
	back, _ := m.FromKey(key)

	fmt.Printf("%x %v\n", key, back == id)
	// Output: 0800000000000004 true
}
