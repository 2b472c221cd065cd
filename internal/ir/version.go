package ir

// EngineVersion is the tagbatch engine version recorded with every run.
const EngineVersion = "0.1.0"
