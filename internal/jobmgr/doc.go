// Package jobmgr управляет жизненным циклом запросов на планирование.
//
// Manager отвечает за:
//   - Приём PlanRequest: валидация и дедупликация по ключу идемпотентности
//   - Получение снимка карты препятствий нужной версии из кэша
//   - Вызов планировщика и сохранение построенного плана
//   - Передачу job диспетчеру инструкций
//   - Отмену job до начала отправки инструкций
//
// Каждый переход state machine сохраняется в БД до следующего шага
// (write-ahead), поэтому после рестарта polling fallback продолжает
// любой job с последнего сохранённого состояния. Ошибки валидации и
// планирования разрешаются локально в статус FAILED с записанной
// причиной и никогда не пробрасываются за границу job.
package jobmgr
