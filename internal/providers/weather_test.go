package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildAdvisoryRain(t *testing.T) {
	adv := buildAdvisory([]forecastItem{
		{Category: "POP", FcstDate: "20260901", FcstTime: "1400", FcstValue: "80"},
		{Category: "PTY", FcstDate: "20260901", FcstTime: "1400", FcstValue: "1"},
		{Category: "TMP", FcstDate: "20260901", FcstTime: "1400", FcstValue: "24.5"},
	})

	assert.Equal(t, "비 예보, 강수확률 80%", adv.Note)
	assert.Equal(t, 80, adv.PrecipitationProbability)
	if assert.NotNil(t, adv.Temperature) {
		assert.InDelta(t, 24.5, *adv.Temperature, 1e-9)
	}
}

func TestBuildAdvisorySnowBeatsRain(t *testing.T) {
	adv := buildAdvisory([]forecastItem{
		{Category: "PTY", FcstDate: "20260901", FcstTime: "1400", FcstValue: "3"},
	})
	assert.Equal(t, "눈 예보", adv.Note)
}

func TestBuildAdvisorySkyStates(t *testing.T) {
	tests := []struct {
		sky  string
		note string
	}{
		{"1", "맑음"},
		{"3", "구름많음"},
		{"4", "흐림"},
	}
	for _, tt := range tests {
		adv := buildAdvisory([]forecastItem{
			{Category: "SKY", FcstDate: "20260901", FcstTime: "1400", FcstValue: tt.sky},
		})
		assert.Equal(t, tt.note, adv.Note)
	}
}

func TestBuildAdvisoryUsesEarliestForecastPerCategory(t *testing.T) {
	// Items arrive unordered; the earliest date+time per category wins.
	adv := buildAdvisory([]forecastItem{
		{Category: "POP", FcstDate: "20260902", FcstTime: "0200", FcstValue: "90"},
		{Category: "POP", FcstDate: "20260901", FcstTime: "1500", FcstValue: "10"},
		{Category: "POP", FcstDate: "20260901", FcstTime: "1400", FcstValue: "30"},
		{Category: "SKY", FcstDate: "20260901", FcstTime: "1400", FcstValue: "1"},
	})

	assert.Equal(t, 30, adv.PrecipitationProbability)
	assert.Equal(t, "맑음", adv.Note)
}

func TestBuildAdvisoryEmpty(t *testing.T) {
	adv := buildAdvisory(nil)
	assert.Equal(t, "날씨 정보 확인 필요", adv.Note)
	assert.Nil(t, adv.Temperature)
}

func TestResolveBaseTime(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)

	tests := []struct {
		name     string
		now      time.Time
		wantDate string
		wantTime string
	}{
		{
			name:     "afternoon uses latest published slot",
			now:      time.Date(2026, 9, 1, 14, 9, 0, 0, kst),
			wantDate: "20260901",
			wantTime: "1100",
		},
		{
			name:     "just past publication still waits ten minutes",
			now:      time.Date(2026, 9, 1, 14, 5, 0, 0, kst),
			wantDate: "20260901",
			wantTime: "1100",
		},
		{
			name:     "ten minutes after publication flips",
			now:      time.Date(2026, 9, 1, 14, 10, 0, 0, kst),
			wantDate: "20260901",
			wantTime: "1400",
		},
		{
			name:     "early morning rolls back to previous day",
			now:      time.Date(2026, 9, 1, 1, 30, 0, 0, kst),
			wantDate: "20260831",
			wantTime: "2300",
		},
		{
			name:     "late night uses same day last slot",
			now:      time.Date(2026, 9, 1, 23, 30, 0, 0, kst),
			wantDate: "20260901",
			wantTime: "2300",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date, base := resolveBaseTime(tt.now)
			assert.Equal(t, tt.wantDate, date)
			assert.Equal(t, tt.wantTime, base)
		})
	}
}

func TestToForecastGridSeoul(t *testing.T) {
	nx, ny := toForecastGrid(37.579871, 126.98935)
	assert.Equal(t, 60, nx)
	assert.Equal(t, 127, ny)
}

func TestToForecastGridDistinguishesCities(t *testing.T) {
	seoulX, seoulY := toForecastGrid(37.5665, 126.9780)
	busanX, busanY := toForecastGrid(35.1796, 129.0756)
	assert.NotEqual(t, seoulX, busanX)
	assert.NotEqual(t, seoulY, busanY)
}
