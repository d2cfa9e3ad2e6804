// Package onnx runs MegaDetector and species classifier models through onnxruntime
package onnx

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var runtimeLock sync.Mutex

// Initialize loads the onnxruntime shared library. It is safe to call more than once.
// An empty libPath uses the library that the OS loader finds.
func Initialize(libPath string) error {
	runtimeLock.Lock()
	defer runtimeLock.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		if _, err := os.Stat(libPath); err != nil {
			return fmt.Errorf("ONNX Runtime library not found at %v: %w", libPath, err)
		}
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("Error initializing ONNX Runtime: %w", err)
	}
	return nil
}

// Shutdown releases the onnxruntime environment. All sessions must be closed first.
func Shutdown() error {
	runtimeLock.Lock()
	defer runtimeLock.Unlock()
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// session owns one input and one output tensor, which are reused for every run
type session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func newSession(modelPath string, inputName, outputName string, inputShape, outputShape ort.Shape, threads int) (*session, error) {
	if !ort.IsInitialized() {
		return nil, fmt.Errorf("ONNX Runtime is not initialized")
	}
	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("Error creating input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("Error creating output tensor: %w", err)
	}
	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("Error creating session options: %w", err)
	}
	defer options.Destroy()
	if threads > 0 {
		options.SetIntraOpNumThreads(threads)
	}
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)

	s, err := ort.NewAdvancedSession(modelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("Error loading %v: %w", modelPath, err)
	}
	return &session{
		session: s,
		input:   input,
		output:  output,
	}, nil
}

func (s *session) run() error {
	return s.session.Run()
}

func (s *session) close() {
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
