// Package language normalizes the language settings handed to stage
// adapters. Transcription wants ISO 639-1 codes, tesseract wants its
// traineddata names, and LLM prompts read best with English display names;
// operators may configure any of those forms or a plain English word.
package language
