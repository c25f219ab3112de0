package display

import "testing"

func TestClassify_Bands(t *testing.T) {
	tests := []struct {
		eta  int
		want Policy
	}{
		{-100, Off},
		{-1, Off},
		{0, Off},
		{1, Blink(180)},
		{89, Blink(180)},
		{90, Blink(360)},
		{299, Blink(360)},
		{300, Blink(600)},
		{599, Blink(600)},
		{600, Blink(900)},
		{899, Blink(900)},
		{900, Solid},
		{4999, Solid},
		{5000, Off},
		{86400, Off},
	}
	for _, tc := range tests {
		if got := Classify(tc.eta); got != tc.want {
			t.Errorf("Classify(%d) = %v, want %v", tc.eta, got, tc.want)
		}
	}
}

func TestClassify_OffOutsideRange(t *testing.T) {
	for eta := -2000; eta <= 0; eta += 7 {
		if got := Classify(eta); got != Off {
			t.Fatalf("Classify(%d) = %v, want off", eta, got)
		}
	}
	for eta := 5000; eta < 20000; eta += 13 {
		if got := Classify(eta); got != Off {
			t.Fatalf("Classify(%d) = %v, want off", eta, got)
		}
	}
}

func TestClassify_NearBand(t *testing.T) {
	for eta := 90; eta < 300; eta++ {
		if got := Classify(eta); got != Blink(360) {
			t.Fatalf("Classify(%d) = %v, want blink(360ms)", eta, got)
		}
	}
}

func TestIsOn_OffAndSolid(t *testing.T) {
	for _, now := range []int64{0, 1, 179, 180, 59999, 1_700_000_000_123} {
		if Off.IsOn(now) {
			t.Errorf("Off.IsOn(%d) = true", now)
		}
		if !Solid.IsOn(now) {
			t.Errorf("Solid.IsOn(%d) = false", now)
		}
	}
}

func TestIsOn_FirstHalfOfInterval(t *testing.T) {
	p := Blink(360)
	tests := []struct {
		now  int64
		want bool
	}{
		{0, true},
		{179, true},
		{180, false},
		{359, false},
		{360, true},
		{14900, true},  // 14900 mod 360 = 140
		{15000, false}, // 240
		{15060, false}, // 300
	}
	for _, tc := range tests {
		if got := p.IsOn(tc.now); got != tc.want {
			t.Errorf("Blink(360).IsOn(%d) = %v, want %v", tc.now, got, tc.want)
		}
	}
}

func TestIsOn_Periodic(t *testing.T) {
	for _, interval := range []int64{180, 360, 600, 900} {
		p := Blink(interval)
		for now := int64(0); now < 5000; now += 11 {
			if p.IsOn(now) != p.IsOn(now+interval) {
				t.Fatalf("Blink(%d): IsOn(%d) != IsOn(%d)", interval, now, now+interval)
			}
		}
	}
}

func TestIsOn_NegativeClock(t *testing.T) {
	p := Blink(360)
	// -100 is congruent to 260 mod 360.
	if p.IsOn(-100) {
		t.Error("IsOn(-100) = true, want false")
	}
	if !p.IsOn(-300) { // congruent to 60
		t.Error("IsOn(-300) = false, want true")
	}
}

func TestIsOn_ZeroInterval(t *testing.T) {
	if Blink(0).IsOn(100) {
		t.Error("Blink(0).IsOn = true, want false")
	}
}

func TestPolicy_String(t *testing.T) {
	tests := map[Policy]string{
		Off:        "off",
		Solid:      "solid",
		Blink(180): "blink(180ms)",
	}
	for p, want := range tests {
		if got := p.String(); got != want {
			t.Errorf("%#v.String() = %q, want %q", p, got, want)
		}
	}
}
