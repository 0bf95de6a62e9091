// Package chartfile imports charts written in HCL.
//
//	name        = "Fill tank"
//	description = "ramp and hold"
//
//	step "fill" {
//	  kind     = "setvalue"
//	  variable = "Tank.Level"
//	  start    = 0
//	  end      = 100
//	  duration = 5
//	}
//
//	step "hold" {
//	  kind     = "wait"
//	  duration = 2
//	  after    = ["fill"]
//	}
//
// Each step becomes a designer node and each "after" entry an edge.
package chartfile
