// Command studyhub is the command-line client for the studyhub daemon. It
// submits lectures and whiteboard photos, shows job status and the Study Hub
// listing, cancels and deletes jobs, downloads artifacts, and manages the configuration
// file. All job operations go through the daemon's HTTP API.
package main
