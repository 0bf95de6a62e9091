// Package variable is sfcd's view of the external automation server.
//
// Process variables are addressed by string ids (for example
// "ns=2;s=Plant.Tank.Level") and carry a closed set of value types:
// Int32, Float, Boolean and String. Access goes through a Session opened
// with Access.Connect; every call takes a context and may fail.
//
// Two Access implementations exist:
//   - Gateway talks MQTT request/response to a protocol gateway that sits
//     next to the automation server.
//   - MemoryServer is an in-process simulated server used for demos
//     (gateway.mode: memory) and tests. It supports failure injection.
package variable
