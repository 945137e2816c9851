package weather

// ToRows transposes a validated DailySeries into one WeatherRecord per day.
//
// Provided series are zipped with the dates and the result is cut to the
// shortest of them; an absent series yields nil for its column in every row.
// When entries are dropped, a TruncationEvent describing the loss is returned
// alongside the rows.
func ToRows(s DailySeries) ([]WeatherRecord, *TruncationEvent) {
	lengths := map[string]int{"time": len(s.Dates)}
	if s.TempMax.Provided {
		lengths["temperature_2m_max"] = s.TempMax.Len()
	}
	if s.TempMin.Provided {
		lengths["temperature_2m_min"] = s.TempMin.Len()
	}
	if s.WeatherCode.Provided {
		lengths["weather_code"] = s.WeatherCode.Len()
	}

	n := len(s.Dates)
	for _, l := range lengths {
		n = min(n, l)
	}

	rows := make([]WeatherRecord, n)
	for i := 0; i < n; i++ {
		rows[i] = WeatherRecord{
			Date:        s.Dates[i],
			TempMax:     s.TempMax.At(i),
			TempMin:     s.TempMin.At(i),
			WeatherCode: s.WeatherCode.At(i),
		}
	}

	dropped := 0
	for _, l := range lengths {
		dropped += l - n
	}
	if dropped == 0 {
		return rows, nil
	}
	return rows, &TruncationEvent{Kept: n, Dropped: dropped, Lengths: lengths}
}
