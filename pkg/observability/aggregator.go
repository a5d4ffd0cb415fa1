package observability

import "github.com/aretw0/callflow/pkg/domain"

// Aggregate combines several observers into one. Nil observers are skipped.
func Aggregate(observers ...domain.Observer) domain.Observer {
	var active []domain.Observer
	for _, o := range observers {
		if o != nil {
			active = append(active, o)
		}
	}
	switch len(active) {
	case 0:
		return nil
	case 1:
		return active[0]
	}
	return func(e domain.Event) {
		for _, o := range active {
			o(e)
		}
	}
}
