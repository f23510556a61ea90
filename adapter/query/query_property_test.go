package query

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/codec"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/mapper"
)

var steps = []func(q *Query, n int){
	func(q *Query, n int) { q.Filter("age >", n) },
	func(q *Query, n int) { q.Filter("age <=", n) },
	func(q *Query, n int) { q.Field("score").GreaterThanOrEq(float64(n)) },
	func(q *Query, n int) { q.Field("tags").HasThisOne("t") },
	func(q *Query, n int) { q.Field("tags").SizeEq(n) },
	func(q *Query, n int) { q.Field("firstName").Not().StartsWith("a") },
	func(q *Query, n int) { q.Field("addresses.city").In([]string{"a", "b"}) },
	func(q *Query, n int) { q.Or(q.Criteria("age").Equal(n), q.Criteria("active").Equal(true)) },
	func(q *Query, n int) { q.And(q.Criteria("values").HasAllOf([]int{n})) },
	func(q *Query, n int) { q.Field("extra.k").Exists() },
}

// Rendering never changes a query, and clones are independent from the
// query they were taken from.
func TestProperty_RenderIsPure(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	props := gopter.NewProperties(params)

	m := mapper.NewMapper()
	c := codec.NewCodec(m)
	mc, err := m.EntityClass(Person{})
	if err != nil {
		t.Fatal(err)
	}

	genSteps := gen.SliceOf(gen.IntRange(0, len(steps)-1))

	props.Property("render is pure", prop.ForAll(func(order []int, n int) bool {
		q := New(c, mc, "people", nil)
		for _, i := range order {
			steps[i](q, n)
		}
		first, err := q.Render()
		if err != nil {
			return false
		}
		second, err := q.Render()
		if err != nil || !reflect.DeepEqual(first, second) {
			return false
		}

		cp := q.Clone()
		steps[0](cp, n+1)
		third, err := q.Render()
		return err == nil && reflect.DeepEqual(first, third)
	}, genSteps, gen.IntRange(0, 100)))

	props.TestingRun(t)
}
