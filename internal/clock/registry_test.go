package clock

import "testing"

func TestFirstPublisherPutRequiresClockAtLeastOne(t *testing.T) {
	r := New()
	if r.AcceptPublisher("VIC01", 0) {
		t.Fatal("expected clock 0 to be rejected for a fresh station")
	}
	if !r.AcceptPublisher("VIC01", 1) {
		t.Fatal("expected clock 1 to be accepted for a fresh station")
	}
}

func TestPublisherClockStrictlyIncreasing(t *testing.T) {
	r := New()
	r.AcceptPublisher("VIC01", 2)

	if r.AcceptPublisher("VIC01", 2) {
		t.Fatal("expected a replayed clock value to be rejected")
	}
	if !r.AcceptPublisher("VIC01", 3) {
		t.Fatal("expected a strictly greater clock to be accepted")
	}
}

func TestPublishersAreIndependent(t *testing.T) {
	r := New()
	r.AcceptPublisher("VIC01", 5)

	if !r.AcceptPublisher("SA01", 1) {
		t.Fatal("a different station's clock should not be affected by another station's history")
	}
}

func TestRemovePublisherResetsToFirstContact(t *testing.T) {
	r := New()
	r.AcceptPublisher("VIC01", 1)
	r.RemovePublisher("VIC01")

	if r.PublisherLast("VIC01") != 0 {
		t.Fatalf("expected last clock 0 after removal, got %d", r.PublisherLast("VIC01"))
	}
	if !r.AcceptPublisher("VIC01", 1) {
		t.Fatal("expected clock 1 to be accepted again after removal")
	}
}

func TestReaderClockIndependentFromPublisher(t *testing.T) {
	r := New()
	r.AcceptPublisher("VIC01", 5)

	if !r.AcceptReader("VIC01", 1) {
		t.Fatal("reader and publisher clock namespaces must not interfere")
	}
}

func TestClearResetsBothMaps(t *testing.T) {
	r := New()
	r.AcceptPublisher("VIC01", 3)
	r.AcceptReader("127.0.0.1:5000", 2)

	r.Clear()

	if r.PublisherLast("VIC01") != 0 {
		t.Fatal("expected publisher clocks cleared")
	}
	if !r.AcceptReader("127.0.0.1:5000", 1) {
		t.Fatal("expected reader clocks cleared")
	}
}
