// Package pipeline turns captured camera frames into upright RGBA frames and
// hands them to a vision engine and a display surface.
//
// Each frame runs through the same steps on the camera worker goroutine:
//
//	wrap (zero-copy for RGBA, converted for JPEG/YUV420/NV21)
//	  -> rotate by the total rotation
//	  -> flip on the mirror axis
//	  -> engine.Process (errors are counted, never fatal)
//	  -> draw to the surface if one is set and valid
//	  -> release the camera frame
//
// # Usage
//
//	p := pipeline.New(frame.Software{}, engine, pipeline.Options{})
//	mgr.OnOpened = p.Attach
//	mgr.SetListener(p.HandleFrame)
//	p.SetSurface(stream)
//
// Transform parameters are recomputed only when an input changes, through
// Attach or SetDisplayRotation. Surface and parameters are swapped
// atomically, so a single writer may change them while frames flow.
package pipeline
