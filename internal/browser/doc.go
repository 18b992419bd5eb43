// Package browser defines the engine driver interface that every browser
// automation backend implements, the capability interface a test body
// drives, and the engine registry that discovers which engines are installed
// on the local machine.
package browser
