package common

const (
	// LamportsPerSol is the number of lamports in one SOL.
	LamportsPerSol uint64 = 1_000_000_000

	// AirdropLamports is requested on test clusters before a launch.
	AirdropLamports = LamportsPerSol

	// PlaceholderPrice is the machine price used by test launches.
	// The intended 0.1 truncates to zero lamports.
	PlaceholderPrice uint64 = 0

	// ConfigLines is the number of entries reserved per config resource.
	ConfigLines = 1

	ContentTypePNG  = "image/png"
	ContentTypeJSON = "application/json"
)
