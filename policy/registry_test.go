package policy

import (
	"sync"
	"testing"
	"time"
)

func TestRegistry_UnknownMethodIsInactive(t *testing.T) {
	r := NewRegistry()
	d, _ := r.GetPolicy("no.such.method")
	if d.Active() {
		t.Fatal("unknown method must resolve to an inactive descriptor")
	}
}

func TestRegistry_UpsertIsVisibleImmediately(t *testing.T) {
	r := NewRegistry()
	r.Upsert("Users.Get", Descriptor{Duration: 5 * time.Minute, Tags: []string{"users"}})

	d, prov := r.GetPolicy("Users.Get")
	if !d.Active() || d.Duration != 5*time.Minute {
		t.Fatalf("got %+v, want active 5m duration", d)
	}
	if prov != ProvenanceOverride {
		t.Fatalf("got provenance %v, want override", prov)
	}
}

func TestRegistry_PrecedenceOverridesLowerLayer(t *testing.T) {
	r := NewRegistry()

	r.SetAttribute("Orders.Get", Descriptor{Duration: time.Minute, Tags: []string{"attr-tag"}},
		NewFieldSet().Duration(time.Minute))
	r.SetFluent("Orders.Get", Descriptor{Duration: 2 * time.Minute, Tags: []string{"fluent-tag"}},
		NewFieldSet().Duration(2*time.Minute))

	d, prov := r.GetPolicy("Orders.Get")
	if d.Duration != 2*time.Minute {
		t.Fatalf("fluent layer should win Duration, got %v", d.Duration)
	}
	if prov != ProvenanceFluent {
		t.Fatalf("provenance = %v, want fluent", prov)
	}

	// Tags union across both layers rather than replacing.
	want := map[string]bool{"attr-tag": true, "fluent-tag": true}
	if len(d.Tags) != len(want) {
		t.Fatalf("Tags = %v, want union of %v", d.Tags, want)
	}
	for _, tag := range d.Tags {
		if !want[tag] {
			t.Errorf("unexpected tag %q", tag)
		}
	}
}

func TestRegistry_TagsUnionAcrossOverride(t *testing.T) {
	r := NewRegistry()
	r.SetAttribute("Reports.Get", Descriptor{Duration: time.Minute, Tags: []string{"default"}},
		NewFieldSet().Duration(time.Minute))
	r.SetOverride("Reports.Get", Descriptor{Duration: 10 * time.Minute, Tags: []string{"override-only"}},
		NewFieldSet().Duration(10*time.Minute))

	d, _ := r.GetPolicy("Reports.Get")
	if d.Duration != 10*time.Minute {
		t.Fatalf("override should win Duration, got %v", d.Duration)
	}

	hasDefault, hasOverride := false, false
	for _, tag := range d.Tags {
		if tag == "default" {
			hasDefault = true
		}
		if tag == "override-only" {
			hasOverride = true
		}
	}
	if !hasDefault {
		t.Error("override must not drop the attribute layer's default tag")
	}
	if !hasOverride {
		t.Error("override's own tag must be present")
	}
}

func TestRegistry_SubscribeNotifiesOnChange(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	wg.Add(1)
	var gotMethod string
	r.Subscribe(func(methodID string, d Descriptor) {
		gotMethod = methodID
		wg.Done()
	})

	r.Upsert("Invoices.Get", Descriptor{Duration: time.Minute})
	wg.Wait()

	if gotMethod != "Invoices.Get" {
		t.Fatalf("subscriber got methodID %q, want Invoices.Get", gotMethod)
	}
}

func TestRegistry_ConcurrentReadsDuringWrite(t *testing.T) {
	r := NewRegistry()
	r.Upsert("Hot.Path", Descriptor{Duration: time.Minute})

	stop := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					d, _ := r.GetPolicy("Hot.Path")
					if d.Duration != time.Minute && d.Duration != 2*time.Minute {
						t.Errorf("torn read: Duration = %v", d.Duration)
					}
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		r.Upsert("Hot.Path", Descriptor{Duration: time.Minute})
		r.Upsert("Hot.Path", Descriptor{Duration: 2 * time.Minute})
	}
	close(stop)
	wg.Wait()
}
