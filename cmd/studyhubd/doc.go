// Command studyhubd runs the studyhub daemon: the HTTP API, the ingestion
// gateway, and the orchestrator that drives lecture and whiteboard jobs
// through their stages.
package main
