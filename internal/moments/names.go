package moments

// Statistic names are the stable identifiers the pruning interface and the
// persistence layer key on. Naming follows the nu/mu convention for raw and
// central moments.
const (
	StatNu1AbsSignal     = "nu1_abs_signal"
	StatNu2Signal        = "nu2_signal"
	StatMu2Signal        = "mu2_signal"
	StatMu4Signal        = "mu4_signal"
	StatNu2Noise         = "nu2_noise"
	StatMu2Noise         = "mu2_noise"
	StatChi              = "chi"
	StatReffSignal       = "reff_signal"
	StatReffNoise        = "reff_noise"
	StatCorrSignalNoise  = "corr_signal_noise"
	StatCorrSignalInputs = "corr_signal_inputs"
)

// Names lists every statistic in canonical order. corr_signal_inputs needs
// at least two batch items and is omitted from single-item reductions.
func Names(batch int) []string {
	names := []string{
		StatNu1AbsSignal,
		StatNu2Signal,
		StatMu2Signal,
		StatMu4Signal,
		StatNu2Noise,
		StatMu2Noise,
		StatChi,
		StatReffSignal,
		StatReffNoise,
		StatCorrSignalNoise,
	}
	if batch >= 2 {
		names = append(names, StatCorrSignalInputs)
	}
	return names
}
