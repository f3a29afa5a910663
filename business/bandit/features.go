package bandit

import (
	"time"

	"gorm.io/datatypes"
)

// stateKey identifies the single response-style learner in the state store.
const stateKey = "response_style"

// Context carries the features available at decision time. Everything here
// is known before the response is spoken; nothing depends on future
// feedback.
type Context struct {
	TimeOfDay        int     // hour, 0-23
	DayOfWeek        int     // 0=Sunday
	InteractionCount int     // technician rolling interaction count
	RecentErrors     int     // technician rolling error count
	AvgResponseTime  float64 // technician EMA reply latency, seconds
	TicketAgeHours   float64 // age of the target ticket
}

// ContextAt builds a Context from the clock plus technician/ticket history.
func ContextAt(now time.Time, interactionCount, recentErrors int, avgResponseTime, ticketAgeHours float64) Context {
	return Context{
		TimeOfDay:        now.Hour(),
		DayOfWeek:        int(now.Weekday()),
		InteractionCount: interactionCount,
		RecentErrors:     recentErrors,
		AvgResponseTime:  avgResponseTime,
		TicketAgeHours:   ticketAgeHours,
	}
}

// Snapshot serializes the context for the decision log. The snapshot must be
// sufficient to rebuild the exact feature vector at reward time.
func (c Context) Snapshot() datatypes.JSONMap {
	return datatypes.JSONMap{
		"time_of_day":       c.TimeOfDay,
		"day_of_week":       c.DayOfWeek,
		"interaction_count": c.InteractionCount,
		"recent_errors":     c.RecentErrors,
		"avg_response_time": c.AvgResponseTime,
		"ticket_age_hours":  c.TicketAgeHours,
	}
}

// ContextFromSnapshot is the inverse of Snapshot. JSON numbers arrive as
// float64 after a round-trip through the decision log.
func ContextFromSnapshot(m map[string]any) Context {
	return Context{
		TimeOfDay:        snapInt(m, "time_of_day"),
		DayOfWeek:        snapInt(m, "day_of_week"),
		InteractionCount: snapInt(m, "interaction_count"),
		RecentErrors:     snapInt(m, "recent_errors"),
		AvgResponseTime:  snapFloat(m, "avg_response_time"),
		TicketAgeHours:   snapFloat(m, "ticket_age_hours"),
	}
}

func snapInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func snapFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func timeBucketFromHour(hour int) float64 {
	switch {
	case hour < 6:
		return 0.0
	case hour < 12:
		return 0.33
	case hour < 18:
		return 0.66
	default:
		return 1.0
	}
}

// dowBucket encodes day-of-week (0=Sunday .. 6=Saturday) into [0, 1].
func dowBucket(dow int) float64 {
	if dow < 0 {
		dow = 0
	} else if dow > 6 {
		dow = 6
	}
	return float64(dow) / 6.0
}

// interactionBucket encodes how experienced the technician is with the
// system: new users benefit from detail, heavy users from brevity.
func interactionBucket(count int) float64 {
	switch {
	case count < 5:
		return 0.0
	case count < 20:
		return 0.5
	default:
		return 1.0
	}
}

// errorBucket encodes how error-prone the technician's recent interactions
// were: struggling users get steered toward clarification-friendly styles.
func errorBucket(recentErrors int) float64 {
	switch {
	case recentErrors <= 0:
		return 0.0
	case recentErrors <= 2:
		return 0.5
	default:
		return 1.0
	}
}

// responseTimeBucket saturates the EMA reply latency at 30 seconds.
func responseTimeBucket(avgSeconds float64) float64 {
	if avgSeconds <= 0 {
		return 0
	}
	const maxSeconds = 30.0
	if avgSeconds >= maxSeconds {
		return 1.0
	}
	return avgSeconds / maxSeconds
}

// ticketAgeBucket saturates at one week.
func ticketAgeBucket(ageHours float64) float64 {
	if ageHours <= 0 {
		return 0
	}
	const weekHours = 168.0
	if ageHours >= weekHours {
		return 1.0
	}
	return ageHours / weekHours
}

func buildFeatureVector(c Context, cfg Config) [linUCBFeatureDim]float64 {
	var x [linUCBFeatureDim]float64

	// index 0: bias
	if cfg.Features.UseBias {
		x[0] = 1.0
	}

	// index 1: time bucket
	if cfg.Features.UseTimeBucket {
		x[1] = timeBucketFromHour(c.TimeOfDay)
	}

	// index 2: day-of-week bucket
	if cfg.Features.UseDowBucket {
		x[2] = dowBucket(c.DayOfWeek)
	}

	// index 3: technician interaction level
	if cfg.Features.UseInteractionLevel {
		x[3] = interactionBucket(c.InteractionCount)
	}

	// index 4: ticket age
	if cfg.Features.UseTicketAge {
		x[4] = ticketAgeBucket(c.TicketAgeHours)
	}

	// index 5: recent error level
	if cfg.Features.UseErrorLevel {
		x[5] = errorBucket(c.RecentErrors)
	}

	// index 6: reply latency
	if cfg.Features.UseResponseTime {
		x[6] = responseTimeBucket(c.AvgResponseTime)
	}

	return x
}
