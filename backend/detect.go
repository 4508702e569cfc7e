// MODUL: detect
// ZWECK: Heuristische Erkennung verfuegbarer Compute-Backends
// INPUT: Keine (Dateisystem- und PATH-Abfragen)
// OUTPUT: Verfuegbarkeit pro Backend
// NEBENEFFEKTE: Dateisystem-Lesezugriffe
// HINWEISE: Ohne cgo laesst sich die CUDA-Runtime nicht direkt abfragen;
//           stattdessen werden Treiber-Artefakte geprueft. Das Ergebnis wird
//           pro Prozess gecacht.

package backend

import (
	"os"
	"os/exec"
	"runtime"
	"sync"
)

// cpuDetector - CPU ist immer verfuegbar
type cpuDetector struct{}

func (d *cpuDetector) Detect() bool { return true }
func (d *cpuDetector) Backend() Backend { return BackendCPU }

// cudaDetector prueft auf NVIDIA-Treiber-Artefakte
type cudaDetector struct {
	once      sync.Once
	available bool
}

func (d *cudaDetector) Detect() bool {
	d.once.Do(func() {
		d.available = cudaAvailable()
	})
	return d.available
}

func (d *cudaDetector) Backend() Backend { return BackendCUDA }

// cudaAvailable prueft Treiber-Dateien und nvidia-smi
func cudaAvailable() bool {
	if runtime.GOOS != "linux" && runtime.GOOS != "windows" {
		return false
	}

	for _, p := range []string{
		"/proc/driver/nvidia/version",
		"/dev/nvidia0",
		"/dev/nvidiactl",
	} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}

	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		return true
	}

	return false
}

// metalDetector - Metal gibt es nur auf macOS
type metalDetector struct{}

func (d *metalDetector) Detect() bool { return runtime.GOOS == "darwin" }
func (d *metalDetector) Backend() Backend { return BackendMetal }
