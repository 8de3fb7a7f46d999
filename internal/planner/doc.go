// Package planner строит маршруты робота по снимку пространства стены.
//
// Два режима:
//   - FindPath    — оптимальный маршрут A* к одной целевой ячейке
//   - CoverRegion — покрытие области: жадная декомпозиция на A*-отрезки
//     к ближайшей непокрытой ячейке
//
// Планировщик — чистая функция от (снимок, старт, цель): без побочных
// эффектов, с детерминированным выводом для одинаковых входов. Бюджет
// раскрытий ограничивает худшее время на патологических картах.
package planner
