// Package textutil sanitizes user-supplied titles for use as file names.
package textutil
