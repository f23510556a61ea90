package query

import "go.mongodb.org/mongo-driver/bson"

// Shape is an area used by $geoWithin.
type Shape interface {
	Document() bson.D
}

// Point is a pair of legacy coordinates, longitude first.
type Point [2]float64

func (p Point) array() bson.A {
	return bson.A{p[0], p[1]}
}

// Box is a rectangle given by its bottom left and upper right corners.
type Box struct {
	BottomLeft Point
	UpperRight Point
}

// Document implements [Shape].
func (b Box) Document() bson.D {
	return bson.D{{Key: "$box", Value: bson.A{b.BottomLeft.array(), b.UpperRight.array()}}}
}

// Center is a circle on a flat surface.
type Center struct {
	Center Point
	Radius float64
}

// Document implements [Shape].
func (c Center) Document() bson.D {
	return bson.D{{Key: "$center", Value: bson.A{c.Center.array(), c.Radius}}}
}

// CenterSphere is a circle on a sphere, with the radius in radians.
type CenterSphere struct {
	Center Point
	Radius float64
}

// Document implements [Shape].
func (c CenterSphere) Document() bson.D {
	return bson.D{{Key: "$centerSphere", Value: bson.A{c.Center.array(), c.Radius}}}
}

// Polygon is a closed area on a flat surface.
type Polygon []Point

// Document implements [Shape].
func (p Polygon) Document() bson.D {
	arr := make(bson.A, len(p))
	for i, pt := range p {
		arr[i] = pt.array()
	}
	return bson.D{{Key: "$polygon", Value: arr}}
}

// Geometry is a GeoJSON object such as a Point or a Polygon.
type Geometry struct {
	Type        string
	Coordinates any
}

// Document implements [Shape].
func (g Geometry) Document() bson.D {
	return bson.D{{Key: "$geometry", Value: bson.D{
		{Key: "type", Value: g.Type},
		{Key: "coordinates", Value: g.Coordinates},
	}}}
}
