package port

// Bus is the bus item protocol consumed by the control loop. Failed reads and
// writes are reported as *domain.BusError.
type Bus interface {
	Read(serviceID, path string) (float64, error)
	Write(serviceID, path string, value float64) error
}
