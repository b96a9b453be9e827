package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinWindow(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := New(3, time.Minute)
	l.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		if !l.Allow(42) {
			t.Fatalf("appel %d refusé avant la limite", i+1)
		}
	}
	if l.Allow(42) {
		t.Fatal("appel accepté au-delà de la limite")
	}
}

func TestRejectedCallNotRecorded(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	l := New(2, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow(7)
	l.Allow(7)
	if l.Allow(7) {
		t.Fatal("troisième appel aurait dû être refusé")
	}

	// Les deux premiers appels sortent de la fenêtre ; le refus ci-dessus
	// ne doit pas avoir compté.
	now = base.Add(61 * time.Second)
	if !l.Allow(7) {
		t.Fatal("appel refusé alors que la fenêtre a glissé")
	}
}

func TestWindowSlides(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	l := New(2, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow(1)
	now = base.Add(30 * time.Second)
	l.Allow(1)

	now = base.Add(59 * time.Second)
	if l.Allow(1) {
		t.Fatal("fenêtre pleine, appel accepté à tort")
	}

	// Le premier appel sort de la fenêtre à base+60s.
	now = base.Add(61 * time.Second)
	if !l.Allow(1) {
		t.Fatal("appel refusé après glissement de la fenêtre")
	}
}

func TestUsersIndependent(t *testing.T) {
	l := New(1, time.Minute)

	if !l.Allow(1) {
		t.Fatal("premier appel utilisateur 1 refusé")
	}
	if !l.Allow(2) {
		t.Fatal("la limite de l'utilisateur 1 a débordé sur l'utilisateur 2")
	}
	if l.Allow(1) {
		t.Fatal("utilisateur 1 au-delà de sa limite")
	}
}
