package state

// Keys of the persisted collections. Each key holds the JSON snapshot of one collection.
const (
	KeyDarkMode         = "@medifind/isDarkMode"
	KeySearchHistory    = "@medifind/searchHistory"
	KeyFavorites        = "@medifind/favorites"
	KeyReminders        = "@medifind/reminders"
	KeyUser             = "@medifind/currentUser"
	KeyDoctors          = "@medifind/doctors"
	KeyDoctorsCacheTime = "@medifind/doctorsCacheTime"
	KeyConsultations    = "@medifind/consultations"
	KeyPrescriptions    = "@medifind/prescriptions"
)

// KeyHydrated is published once after Hydrate completes.
const KeyHydrated = "@medifind/hydrated"

// HistoryLimit is the number of most recent searches kept.
const HistoryLimit = 50
