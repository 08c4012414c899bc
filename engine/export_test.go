package engine

var IsTrackerHost = isTrackerHost
